package testutil

// FixedSessionGenerator returns the same session id every time.
//
// The same scenario run with the same FixedSessionGenerator produces
// byte-identical journals and traces. Unlike engine.FixedGenerator, it never
// runs out, so a harness can build any number of engines with it.
//
// Implements engine.SessionGenerator.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	token string
}

// NewFixedSessionGenerator creates a fixed session generator.
//
// If token is empty, Generate() returns "test-session-default".
func NewFixedSessionGenerator(token string) *FixedSessionGenerator {
	if token == "" {
		token = "test-session-default"
	}
	return &FixedSessionGenerator{token: token}
}

// Generate returns the fixed session id.
func (g *FixedSessionGenerator) Generate() string {
	return g.token
}
