// Package logx is a small zerolog-backed structured logger.
//
// It supports a console writer, an optional append-only log file, and an
// optional rate-limited Telegram sink so operators can watch warnings in
// the same chat the relay posts to. The zero Logger value is a no-op.
package logx
