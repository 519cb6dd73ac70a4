// Package preflight provides readiness checks for the directories, binaries,
// credentials, and remote engines subforge depends on.
//
// These checks run in two contexts:
//   - The daemon reports RunLocal results on /healthz so operators can see a
//     missing ffmpeg or an unwritable staging directory without submitting a job.
//   - The CLI "subforge doctor" command runs RunAll, which additionally pings
//     the configured translation endpoint.
//
// Checks for optional features are marked Optional and never make a
// deployment unhealthy on their own.
package preflight
