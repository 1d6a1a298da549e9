package browserless

// screenshotRequest is the JSON body of the screenshot API.
type screenshotRequest struct {
	URL             string          `json:"url"`
	WaitForSelector *waitForElement `json:"waitForSelector,omitempty"`
	Options         screenshotOpts  `json:"options"`
}

type waitForElement struct {
	Hidden   bool   `json:"hidden"`
	Selector string `json:"selector"`
}

type screenshotOpts struct {
	Type     string `json:"type"`
	FullPage bool   `json:"fullPage"`
	Encoding string `json:"encoding"`
}

func newScreenshotRequest(target, waitSelector string) screenshotRequest {
	req := screenshotRequest{
		URL: target,
		Options: screenshotOpts{
			Type:     "jpeg",
			FullPage: true,
			Encoding: "binary",
		},
	}
	if waitSelector != "" {
		req.WaitForSelector = &waitForElement{Hidden: true, Selector: waitSelector}
	}
	return req
}
