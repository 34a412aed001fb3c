package dto

type CreateWithdrawalRequest struct {
	Amount        string `json:"amount"`
	WalletAddress string `json:"wallet_address"`
}

type RejectWithdrawalRequest struct {
	Reason string `json:"reason"`
}

type EmergencyRequest struct {
	Enabled bool `json:"enabled"`
}
