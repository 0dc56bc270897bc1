package mcp

// SetTransportForTest overrides a connected or not-yet-connected client's
// transport with a test double. It exists so other packages' tests
// (notably internal/agentfacade) can exercise a Client against an
// in-memory Transport without spawning a real subprocess.
func SetTransportForTest(c *Client, t Transport) {
	c.transport = t
}
