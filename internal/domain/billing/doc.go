// Package billing holds the usage metering and entitlement domain: the append-only usage
// event log, the plan catalog and the pure decision rules that turn a tenant's plan and
// aggregated usage into allow or deny answers.
package billing
