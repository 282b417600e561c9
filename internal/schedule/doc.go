// Package schedule computes a conflict-aware 24-hour schedule for one
// calendar date from a set of recurring, optionally dependent tasks.
//
// The computation is a pure function of (tasks, completions, date, now):
//   - recurrence decides which tasks occur on the date
//   - dependency resolution walks dependsOn chains to an effective start time
//   - catch-up moves overdue, incomplete required tasks to "now" (today only)
//   - placement splits every instance into hourly spans and flags hours
//     whose occupied minutes exceed 60
//   - gaps and stats summarize the final slots
//
// Data-quality problems (bad times, missing parents, cycles, unknown
// frequencies) never fail the computation; they degrade to documented
// defaults and are logged.
package schedule
