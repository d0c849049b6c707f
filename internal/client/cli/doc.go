// Package cli provides the interactive VulnBlog command-line client.
//
// It wires configuration, the local session store, the platform adapter,
// the session manager and the view controllers, then runs a REPL next to a
// background token watcher.
//
// Key features:
//   - Home list of published articles, one-shot or live (watch)
//   - Article detail, edit and delete
//   - Sign in / sign up / sign out
//   - Dashboard with my articles (drafts included), create form and
//     profile editor with avatar upload
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
