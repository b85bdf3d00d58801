// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package remoting

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"

	"github.com/absmach/rocketmq/protocol"
)

// ACL ext field names. The signed field set and its ordering are fixed by
// the reference broker implementation: access key plus every ext field,
// keys sorted, values concatenated, body appended.
const (
	signatureField     = "Signature"
	accessKeyField     = "AccessKey"
	securityTokenField = "SecurityToken"
)

// sign returns a copy of the command carrying the ACL ext fields. The input
// command is left untouched so retries re-sign a pristine request.
func sign(cmd *protocol.RemotingCommand, creds *Credentials) *protocol.RemotingCommand {
	if !creds.Valid() {
		return cmd
	}

	signed := cmd.CloneExtFields()
	if creds.SecurityToken != "" {
		signed.ExtFields[securityTokenField] = creds.SecurityToken
	}

	fields := make(map[string]string, len(signed.ExtFields)+1)
	fields[accessKeyField] = creds.AccessKey
	for k, v := range signed.ExtFields {
		fields[k] = v
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	content := make([]byte, 0, len(signed.Body))
	for _, k := range keys {
		content = append(content, fields[k]...)
	}
	content = append(content, signed.Body...)

	signed.ExtFields[signatureField] = calculateSignature(content, []byte(creds.SecretKey))
	signed.ExtFields[accessKeyField] = creds.AccessKey
	return signed
}

func calculateSignature(data, key []byte) string {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
