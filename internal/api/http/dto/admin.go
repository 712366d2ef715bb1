package dto

import (
	"time"

	"github.com/2026musik-code/autoscrip/internal/hostops"
	"github.com/2026musik-code/autoscrip/internal/store"
)

type IssueLicenseRequest struct {
	Months int    `json:"months" binding:"required,min=1,max=120"`
	Note   string `json:"note" binding:"max=500"`
}

type LicenseResponse struct {
	Token        string     `json:"token"`
	Months       int        `json:"months"`
	CreatedAt    time.Time  `json:"created_at"`
	IsUsed       bool       `json:"is_used"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	UsedByDomain string     `json:"used_by_domain,omitempty"`
	Note         string     `json:"note,omitempty"`
}

func NewLicenseResponse(t store.LicenseToken) LicenseResponse {
	return LicenseResponse{
		Token:        t.Token,
		Months:       t.Months,
		CreatedAt:    t.CreatedAt,
		IsUsed:       t.IsUsed,
		UsedAt:       t.UsedAt,
		UsedByDomain: t.UsedByDomain,
		Note:         t.Note,
	}
}

type ListLicensesResponse struct {
	Licenses []LicenseResponse `json:"licenses"`
	Count    int               `json:"count"`
}

// ServerResponse never carries credential fields.
type ServerResponse struct {
	ID           string         `json:"id"`
	IP           string         `json:"ip"`
	Port         int            `json:"port"`
	Domain       string         `json:"domain"`
	Username     string         `json:"username"`
	AuthType     store.AuthKind `json:"auth_type"`
	OS           string         `json:"os"`
	AdminUUID    string         `json:"admin_uuid"`
	AdminURL     string         `json:"admin_url"`
	Date         time.Time      `json:"date"`
	LicenseToken string         `json:"license_token,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Status       store.Status   `json:"status"`
}

func NewServerResponse(r store.ServerRecord) ServerResponse {
	return ServerResponse{
		ID:           r.ID,
		IP:           r.Host,
		Port:         r.Port,
		Domain:       r.Domain,
		Username:     r.Username,
		AuthType:     r.AuthType,
		OS:           r.OS,
		AdminUUID:    r.AdminUUID,
		AdminURL:     r.AdminURL,
		Date:         r.CreatedAt,
		LicenseToken: r.LicenseToken,
		ExpiresAt:    r.ExpiresAt,
		Status:       r.Status,
	}
}

type ListServersResponse struct {
	Servers []ServerResponse `json:"servers"`
	Count   int              `json:"count"`
}

type DiagnoseRequest struct {
	Kind string `json:"kind" binding:"required,oneof=traffic speed"`
}

type DiagnoseResponse = hostops.Report

type AccessTokenRequest struct {
	Token string `json:"token" binding:"required,max=256"`
	Note  string `json:"note" binding:"max=500"`
}

type ListAccessTokensResponse struct {
	Tokens []hostops.AccessToken `json:"tokens"`
	Count  int                   `json:"count"`
}
