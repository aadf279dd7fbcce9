package model

import "fmt"

const phoneNumberLen = 11

type Recipient struct {
	ID            int    `db:"id" json:"id"`
	Phone         string `db:"phone" json:"phone"`
	CarrierPrefix string `db:"carrier_prefix" json:"carrier_prefix"`
	Tag           string `db:"tag" json:"tag"`
	Timezone      string `db:"timezone" json:"timezone"`
}

// ValidatePhone checks the msisdn format: 11 digits, leading 7, and a
// carrier prefix equal to digits 1-3 of the phone.
func ValidatePhone(phone, prefix string) error {
	if len(phone) != phoneNumberLen || phone[0] != '7' {
		return fmt.Errorf("phone must be %d digits starting with 7", phoneNumberLen)
	}
	for _, c := range phone {
		if c < '0' || c > '9' {
			return fmt.Errorf("phone must contain digits only")
		}
	}
	if prefix != phone[1:4] {
		return fmt.Errorf("carrier prefix must match digits 1-3 of the phone")
	}
	return nil
}
