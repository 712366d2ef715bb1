package store

import "time"

type AuthKind string

const (
	AuthPassword   AuthKind = "password"
	AuthPrivateKey AuthKind = "privateKey"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Document is the whole persisted state. It is rewritten wholesale on
// every mutation.
type Document struct {
	Servers       []ServerRecord `json:"servers"`
	LicenseTokens []LicenseToken `json:"licenseTokens"`
}

type ServerRecord struct {
	ID                  string     `json:"id"`
	Host                string     `json:"ip"`
	Port                int        `json:"port"`
	Domain              string     `json:"domain"`
	Username            string     `json:"username"`
	AuthType            AuthKind   `json:"auth_type"`
	EncryptedPassword   string     `json:"encrypted_password,omitempty"`
	EncryptedPrivateKey string     `json:"encrypted_private_key,omitempty"`
	OS                  string     `json:"os"`
	AdminUUID           string     `json:"admin_uuid"`
	AdminURL            string     `json:"admin_url"`
	CreatedAt           time.Time  `json:"date"`
	LicenseToken        string     `json:"license_token,omitempty"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	Status              Status     `json:"status"`
}

type LicenseToken struct {
	Token        string     `json:"token"`
	Months       int        `json:"months"`
	CreatedAt    time.Time  `json:"created_at"`
	IsUsed       bool       `json:"is_used"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	UsedByDomain string     `json:"used_by_domain,omitempty"`
	Note         string     `json:"note,omitempty"`
}

func (d *Document) ServerIndex(id string) int {
	for i := range d.Servers {
		if d.Servers[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) TokenIndex(token string) int {
	for i := range d.LicenseTokens {
		if d.LicenseTokens[i].Token == token {
			return i
		}
	}
	return -1
}

func (d *Document) RemoveServer(id string) bool {
	i := d.ServerIndex(id)
	if i < 0 {
		return false
	}
	d.Servers = append(d.Servers[:i], d.Servers[i+1:]...)
	return true
}

// Clone returns a deep copy so callers can never alias stored state.
func (d Document) Clone() Document {
	out := Document{
		Servers:       make([]ServerRecord, len(d.Servers)),
		LicenseTokens: make([]LicenseToken, len(d.LicenseTokens)),
	}
	for i, s := range d.Servers {
		s.ExpiresAt = cloneTime(s.ExpiresAt)
		out.Servers[i] = s
	}
	for i, t := range d.LicenseTokens {
		t.UsedAt = cloneTime(t.UsedAt)
		out.LicenseTokens[i] = t
	}
	return out
}

func (d *Document) normalize() {
	if d.Servers == nil {
		d.Servers = []ServerRecord{}
	}
	if d.LicenseTokens == nil {
		d.LicenseTokens = []LicenseToken{}
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
