// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package fhir

import (
	"encoding/json"
	"fmt"
)

type outcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics"`
}

type operationOutcome struct {
	ResourceType string         `json:"resourceType"`
	Issue        []outcomeIssue `json:"issue"`
}

// OperationOutcomeSerializer renders a parse failure as a single-line
// OperationOutcome document.
type OperationOutcomeSerializer struct{}

func (OperationOutcomeSerializer) Serialize(index int64, err error) *ErrorDescriptor {
	msg := fmt.Sprintf("Failed to process resource at line: %d with error: %v", index, err)
	b, merr := json.Marshal(operationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []outcomeIssue{{
			Severity:    "error",
			Code:        "processing",
			Diagnostics: msg,
		}},
	})
	if merr != nil {
		b = []byte(`{"resourceType":"OperationOutcome"}`)
	}
	return &ErrorDescriptor{
		Index:            index,
		Message:          msg,
		OperationOutcome: string(b),
	}
}
