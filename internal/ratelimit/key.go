package ratelimit

import "strings"

// KeyForClient builds a limiter key for an inbound client address.
func KeyForClient(clientIP string) string {
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return ""
	}
	return "ip:" + clientIP
}
