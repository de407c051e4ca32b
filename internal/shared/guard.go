package shared

import "net/http"

// Guard builds middleware requiring permissions before a handler runs. The
// authz package provides the canonical implementations (RequireAny and
// RequireAll); handlers depend on this type so they stay decoupled from the
// resolver.
type Guard func(perms ...string) func(http.Handler) http.Handler
