package util

func StringPtr(s string) *string {
	return &s
}

func FloatPtr(v float64) *float64 {
	return &v
}

func IntPtr(v int) *int {
	return &v
}

// StringOrNil returns nil for blank strings.
func StringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
