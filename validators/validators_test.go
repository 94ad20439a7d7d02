//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of SalesETL.
//
// SalesETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SalesETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SalesETL. If not, see https://www.gnu.org/licenses/.

package validators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/salesetl/core"
)

func num(s string) core.Value {
	d, _ := core.ParseDecimal(s)
	return core.DecimalValue(d)
}

func TestCleanedRecordsetValidator(t *testing.T) {
	tests := []struct {
		name       string
		rs         *core.Recordset
		violations []string
	}{
		{
			name: "clean",
			rs: &core.Recordset{
				Columns: []string{"invoice_id", "quantity", "rating"},
				Records: []core.Record{
					{core.StringValue("INV001"), num("3"), core.Null()},
					{core.StringValue("INV002"), num("4"), core.Null()},
				},
			},
		},
		{
			name: "bad column names",
			rs: &core.Recordset{
				Columns: []string{"Invoice ID", "tax_5%", "a", "a"},
			},
			violations: []string{
				`column "Invoice ID" is not normalized`,
				`column "tax_5%" is not normalized`,
				`column "a" appears more than once`,
			},
		},
		{
			name: "nulls left in numeric column",
			rs: &core.Recordset{
				Columns: []string{"quantity"},
				Records: []core.Record{{num("3")}, {core.Null()}},
			},
			violations: []string{`numeric column "quantity" still has 1 nulls`},
		},
		{
			name: "text in numeric column",
			rs: &core.Recordset{
				Columns: []string{"quantity"},
				Records: []core.Record{{core.StringValue("three")}},
			},
			violations: []string{`numeric column "quantity" has a string value in record 0`},
		},
		{
			name: "duplicates",
			rs: &core.Recordset{
				Columns: []string{"invoice_id"},
				Records: []core.Record{{core.StringValue("A")}, {core.StringValue("B")}, {core.StringValue("A")}},
			},
			violations: []string{"record 2 duplicates record 0"},
		},
	}

	validator := NewCleanedRecordsetValidator([]string{"quantity", "rating"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(context.Background(), tt.rs)
			if len(tt.violations) == 0 {
				assert.NoError(t, err)
				return
			}

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.violations, validationErr.Violations)
		})
	}
}

func TestCleanedRecordsetValidatorRequiredColumns(t *testing.T) {
	validator := NewCleanedRecordsetValidator(nil, WithRequiredColumns("invoice_id"))

	err := validator.Validate(context.Background(), core.NewRecordset("branch"))
	assert.EqualError(t, err, `cleaned recordset failed validation: required column "invoice_id" is missing`)
}

func TestCleanedRecordsetValidatorMaxViolations(t *testing.T) {
	rs := core.NewRecordset("id")
	for i := 0; i < 10; i++ {
		rs.Append(core.StringValue("same"))
	}

	err := NewCleanedRecordsetValidator(nil, WithMaxViolations(3)).Validate(context.Background(), rs)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Violations, 3)
}

func TestCleanedRecordsetValidatorAsStep(t *testing.T) {
	step := NewCleanedRecordsetValidator([]string{"quantity"}).AsStep()
	assert.Equal(t, "validate", step.Name())

	rs := &core.Recordset{Columns: []string{"quantity"}, Records: []core.Record{{num("1")}}}
	out, err := step.Apply(context.Background(), rs)
	require.NoError(t, err)
	assert.Same(t, rs, out)

	_, err = step.Apply(context.Background(), &core.Recordset{Columns: []string{"Bad Name"}})
	assert.Error(t, err)
}
