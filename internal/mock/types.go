package mock

// Config represents the mock target configuration
type Config struct {
	Port    int     `json:"port" yaml:"port"`       // Server port (default: 8080)
	Host    string  `json:"host" yaml:"host"`       // Server host (default: localhost)
	Routes  []Route `json:"routes" yaml:"routes"`   // Route definitions
	Logging bool    `json:"logging" yaml:"logging"` // Log every request at debug level
}

// Route represents a mock route configuration
type Route struct {
	Name          string            `json:"name,omitempty" yaml:"name,omitempty"`                   // Route description
	Method        string            `json:"method" yaml:"method"`                                   // HTTP method (GET, POST, etc.)
	Path          string            `json:"path" yaml:"path"`                                       // URL path pattern
	PathType      string            `json:"pathType,omitempty" yaml:"pathType,omitempty"`           // exact, prefix, regex (default: exact)
	Status        int               `json:"status" yaml:"status"`                                   // HTTP status code
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`             // Response headers
	Body          string            `json:"body,omitempty" yaml:"body,omitempty"`                   // Response body
	BodyFile      string            `json:"bodyFile,omitempty" yaml:"bodyFile,omitempty"`           // Path to response body file
	Delay         int               `json:"delay,omitempty" yaml:"delay,omitempty"`                 // Response delay in milliseconds
	Jitter        int               `json:"jitter,omitempty" yaml:"jitter,omitempty"`               // Random extra delay in [0, jitter) milliseconds
	FailureRate   float64           `json:"failureRate,omitempty" yaml:"failureRate,omitempty"`     // Share of requests answered with FailureStatus
	FailureStatus int               `json:"failureStatus,omitempty" yaml:"failureStatus,omitempty"` // Status for failed requests (default: 500)
}

// RouteStats counts the requests a route has answered
type RouteStats struct {
	Route    string `json:"route"`
	Hits     int64  `json:"hits"`
	Failures int64  `json:"failures"`
}
