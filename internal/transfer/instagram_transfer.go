package transfer

type GraphMediaRequest struct {
	ImageURL    string `json:"image_url"`
	Caption     string `json:"caption,omitempty"`
	AccessToken string `json:"access_token"`
}

type GraphPublishRequest struct {
	CreationID  string `json:"creation_id"`
	AccessToken string `json:"access_token"`
}

type GraphIDResponse struct {
	ID string `json:"id"`
}

type GraphPermalinkResponse struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
}

type GraphTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type GraphErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}
