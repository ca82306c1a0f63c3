package main

import "github.com/charmbracelet/lipgloss"

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))

	successIcon = successStyle.Render("✓")
	errorIcon   = errorStyle.Render("✗")
)
