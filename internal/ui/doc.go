// Package ui holds the lipgloss styles shared by CLI output: status lines from cmd and the
// tables rendered by the formatter package.
package ui
