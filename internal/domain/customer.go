package domain

type Customer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	KYCVerified bool   `json:"kyc_verified"`
}
