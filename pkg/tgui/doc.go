// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - A simple, safe message builder with sensible defaults
//
// Safe by default for Telegram ParseMode="HTML" (auto escaping).
package tgui
