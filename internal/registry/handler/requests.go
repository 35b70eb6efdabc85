package handler

type registerRequest struct {
	ContentAddress string `json:"content_address"`
	Price          int64  `json:"price"`
	Metadata       string `json:"metadata"`
}

type updateMetadataRequest struct {
	Metadata string `json:"metadata"`
}

type grantAccessRequest struct {
	Beneficiary string `json:"beneficiary"`
}

type setFeeRequest struct {
	FeePercentage int `json:"fee_percentage"`
}
