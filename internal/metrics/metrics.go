package metrics

import "expvar"

var (
	GateEvaluations   = expvar.NewInt("gate_evaluations")
	GateDenials       = expvar.NewInt("gate_denials")
	LedgerSaves       = expvar.NewInt("ledger_saves")
	LedgerSaveErrors  = expvar.NewInt("ledger_save_errors")
	ReconcileRuns     = expvar.NewInt("reconcile_runs")
	ReconcileErrors   = expvar.NewInt("reconcile_errors")
	AuditAppends      = expvar.NewInt("audit_appends")
	AuditAppendErrors = expvar.NewInt("audit_append_errors")
	DriftEvents       = expvar.NewInt("drift_events")
	ThrottleTrips     = expvar.NewInt("throttle_trips")
)
