package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"

	"github.com/desertthunder/ytgate/internal/auth"
	"github.com/desertthunder/ytgate/internal/models"
)

// CallbackResult is the outcome of a local login flow.
type CallbackResult struct {
	Credential models.Credential
	Err        error
}

// CallbackHandler receives the single OAuth redirect of a CLI login on a loopback server.
//
// It implements [Handler] so the CLI can mount it on a throwaway [BasicRouter].
type CallbackHandler struct {
	oauth  OAuthFlow
	state  string
	result chan CallbackResult
	once   sync.Once
	mu     sync.Mutex
	hit    bool
}

// NewCallbackHandler creates a handler expecting state on the redirect.
func NewCallbackHandler(oauth OAuthFlow, state string) *CallbackHandler {
	return &CallbackHandler{
		oauth:  oauth,
		state:  state,
		result: make(chan CallbackResult, 1),
	}
}

// Routes implements [Handler].
func (h *CallbackHandler) Routes() []string {
	return []string{"/callback", "/auth/callback"}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		WriteError(w, r, Errorf(http.StatusBadRequest, "Callback already processed"))
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if subtle.ConstantTimeCompare([]byte(q.Get("state")), []byte(h.state)) != 1 {
		h.send(CallbackResult{Err: auth.ErrStateMismatch})
		WriteError(w, r, auth.ErrStateMismatch)
		return
	}

	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s %s", auth.ErrMissingCode, q.Get("error"), q.Get("error_description"))
		h.send(CallbackResult{Err: err})
		WriteError(w, r, err)
		return
	}

	cred, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.send(CallbackResult{Err: err})
		WriteError(w, r, err)
		return
	}
	h.send(CallbackResult{Credential: cred})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, callbackPage)
}

func (h *CallbackHandler) send(res CallbackResult) {
	h.once.Do(func() {
		h.result <- res
		close(h.result)
	})
}

// Result receives exactly one value and is then closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.result
}

const callbackPage = `<!DOCTYPE html>
<html>
<head>
    <title>ytgate login</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #ff0033; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Signed in</h1>
        <p>Your session token is printed in the terminal. You can close this window.</p>
    </div>
</body>
</html>
`
