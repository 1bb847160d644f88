package auth

// Redirector is the Navigator used by HTTP handlers.  It remembers the last
// requested route so the handler can answer with a redirect once the
// operation returns.
type Redirector struct {
	target string
}

// Navigate implements Navigator.
func (r *Redirector) Navigate(path string) { r.target = path }

// Target returns the last route passed to Navigate, or "".
func (r *Redirector) Target() string { return r.target }
