package datadump

// listResponse is the body of the dump listing endpoint.
type listResponse struct {
	Files   []string `json:"files"`
	Success bool     `json:"success"`
}
