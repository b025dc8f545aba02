// Package logx is telepal's structured logging layer.
//
// Logger is a small value type over zerolog:
//   - console records are human readable with a short caller
//   - the optional file sink keeps JSON lines
//   - the optional Telegram sink forwards warnings to an ops chat, rate limited
package logx
