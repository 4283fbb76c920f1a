package storage

import (
	_ "embed"
)

const (
	insertRunSQL = `
INSERT INTO runs (started_at,
                  variant,
                  address,
                  config)
VALUES (?, ?, ?, ?)`

	finishRunSQL = `
UPDATE runs
SET finished_at = ?,
    error       = ?
WHERE id = ?`

	insertStepSQL = `
INSERT INTO steps (run_id,
                   name,
                   status,
                   error,
                   started_at,
                   finished_at)
VALUES (?, ?, ?, ?, ?, ?)`

	insertPositionSQL = `
INSERT INTO positions (run_id,
                       timestamp,
                       latitude,
                       longitude,
                       altitude,
                       roll,
                       pitch,
                       yaw)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectRunsSQL = `
SELECT r.id,
       r.started_at,
       r.finished_at,
       r.variant,
       r.address,
       r.config,
       r.error,
       (SELECT COUNT(*) FROM positions p WHERE p.run_id = r.id)
FROM runs r
ORDER BY r.id`

	selectStepsSQL = `
SELECT name,
       status,
       error,
       started_at,
       finished_at
FROM steps
WHERE run_id = ?
ORDER BY id`

	selectPositionsSQL = `
SELECT timestamp,
       latitude,
       longitude,
       altitude,
       roll,
       pitch,
       yaw
FROM positions
WHERE run_id = ?
ORDER BY id`
)

//go:embed schema.sql
var initSchemaSQL string
