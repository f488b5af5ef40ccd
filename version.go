package statetap

// Version information for the statetap interceptor library
const (
	// Version is the current library version
	Version = "development"

	// APIVersion is the facade contract version the interceptors expect
	APIVersion = "v1"
)
