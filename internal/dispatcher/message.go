package dispatcher

import "fmt"

const emailSubject = "Your verification code"

func codeMessage(issuer string, code string) string {
	return fmt.Sprintf("%s verification code: %s. Do not share this code with anyone.", issuer, code)
}
