package atlas

import (
	"time"
)

type paginated[T any] struct {
	Results    []T `json:"results"`
	TotalCount int `json:"totalCount"`
}

// Project is an Atlas project (API "group").
type Project struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	OrgID   string    `json:"orgId"`
	Created time.Time `json:"created"`
}

// ConnectionStrings holds the driver URIs for a cluster.
type ConnectionStrings struct {
	Standard    string `json:"standard,omitempty"`
	StandardSrv string `json:"standardSrv,omitempty"`
}

// Cluster is an Atlas deployment.
type Cluster struct {
	Name              string            `json:"name"`
	GroupID           string            `json:"groupId,omitempty"`
	ClusterType       string            `json:"clusterType,omitempty"`
	StateName         string            `json:"stateName,omitempty"`
	MongoDBVersion    string            `json:"mongoDBVersion,omitempty"`
	Paused            bool              `json:"paused,omitempty"`
	ConnectionStrings ConnectionStrings `json:"connectionStrings"`
}

// PreferredConnectionString returns the SRV string when present, else the standard one.
func (c *Cluster) PreferredConnectionString() string {
	if c.ConnectionStrings.StandardSrv != "" {
		return c.ConnectionStrings.StandardSrv
	}
	return c.ConnectionStrings.Standard
}

// Role grants a database user a role on a database.
type Role struct {
	RoleName     string `json:"roleName"`
	DatabaseName string `json:"databaseName"`
}

// Scope restricts a database user to a cluster or data lake.
type Scope struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// DatabaseUser is a database user request or response body.
type DatabaseUser struct {
	DatabaseName    string     `json:"databaseName"`
	GroupID         string     `json:"groupId"`
	Username        string     `json:"username"`
	Password        string     `json:"password,omitempty"`
	Roles           []Role     `json:"roles"`
	Scopes          []Scope    `json:"scopes,omitempty"`
	DeleteAfterDate *time.Time `json:"deleteAfterDate,omitempty"`
	AWSIAMType      string     `json:"awsIAMType,omitempty"`
	LDAPAuthType    string     `json:"ldapAuthType,omitempty"`
	OIDCAuthType    string     `json:"oidcAuthType,omitempty"`
	X509Type        string     `json:"x509Type,omitempty"`
}
