package dto

import "encoding/json"

// InstallRequest mirrors the install form. Port may arrive as a number or
// a numeric string.
type InstallRequest struct {
	IP           string      `json:"ip"`
	Port         json.Number `json:"port"`
	Username     string      `json:"username"`
	AuthType     string      `json:"authType"`
	Password     string      `json:"password"`
	PrivateKey   string      `json:"privateKey"`
	Domain       string      `json:"domain"`
	OS           string      `json:"os"`
	LicenseToken string      `json:"licenseToken"`
	SessionID    string      `json:"sessionId"`
}

type RebuildRequest struct {
	IP              string      `json:"ip"`
	Port            json.Number `json:"port"`
	Username        string      `json:"username"`
	CurrentPassword string      `json:"currentPassword"`
	TargetOS        string      `json:"targetOS"`
	TargetVersion   string      `json:"targetVersion"`
	NewPassword     string      `json:"newPassword"`
	SessionID       string      `json:"sessionId"`
}

type AcceptedResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

type RebuildTargetsResponse struct {
	Targets map[string][]string `json:"targets"`
}
