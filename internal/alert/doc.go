// Package alert provides the business boundary for citizen safety reports.
// It defines the Alert model, the lifecycle Service (create, classify,
// resolve), the Store interface implemented by the memstore, sqlitestore and
// pgstore backends, and the Prometheus metrics for the intake pipeline.
package alert
