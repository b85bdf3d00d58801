// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package remoting

// Credentials hold the ACL identity shared by every signed request. They
// are read-only after construction.
type Credentials struct {
	AccessKey     string
	SecretKey     string
	SecurityToken string
}

// Valid reports whether the credentials can produce a signature.
func (c *Credentials) Valid() bool {
	return c != nil && c.AccessKey != "" && c.SecretKey != ""
}
