// Package drift compares job definitions declared for the scheduling
// server with the copies the server holds.
//
// Both sides go through Normalize before comparison: server-assigned id,
// uuid and project fields are dropped, the job name is forced to the
// declared one, a six-field crontab schedule is expanded into the
// structured time/month/dayofmonth|weekday form, and exactly one job per
// document is allowed. Differs is a structural comparison of the results.
//
// The Detector reads the server copy through host.JobCLI and pushes the
// canonical desired document back when the two differ.
package drift
