// Package report renders DaySchedules for people: a terminal view, a plain
// digest for chat messages, JSON, and short warning lines.
package report
