package service

import (
	"fmt"
	"strconv"
	"strings"

	"backoffice/internal/bubble"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// FieldKind selects how a remote value is converted
type FieldKind int

const (
	KindString FieldKind = iota
	KindDecimal
	KindTime
	KindInt
	KindBool
	KindStringList
)

// FieldSpec maps one remote field (first present alias wins) to a local column.
// A missing or unparseable value becomes Default; a nil Default means the kind's zero value
// for strings, lists and bools and NULL for the rest.
type FieldSpec struct {
	Column  string
	Remote  []string
	Kind    FieldKind
	Default interface{}
}

// EntitySpec describes one mirrored remote type
type EntitySpec struct {
	Name     string
	TypeName string
	Table    string
	Fields   []FieldSpec
}

func field(column string, kind FieldKind, remote ...string) FieldSpec {
	return FieldSpec{Column: column, Remote: remote, Kind: kind}
}

var commonFields = []FieldSpec{
	field("created_date", KindTime, "Created Date"),
	field("modified_date", KindTime, bubble.ModifiedDateField),
}

var paymentFieldSpecs = []FieldSpec{
	field("amount", KindDecimal, "Amount"),
	field("payment_date", KindTime, "Payment Date"),
	field("payment_method", KindString, "Payment Method"),
	field("epp_type", KindString, "EPP Type"),
	field("issuer_bank", KindString, "Issuer Bank"),
	field("epp_month", KindInt, "EPP Month"),
	field("epp_cost", KindDecimal, "EPP Cost"),
	field("linked_invoice", KindString, "Linked Invoice"),
	field("linked_agent", KindString, "Linked Agent"),
	field("linked_customer", KindString, "Linked Customer"),
	field("attachment", KindStringList, "Attachment"),
	field("remark", KindString, "Remark"),
	field("log", KindString, "Log"),
}

// Entities lists the mirrored types in dependency order. Referenced rows sync before the rows pointing at them.
var Entities = []EntitySpec{
	{
		Name: "user", TypeName: "user", Table: "users",
		Fields: []FieldSpec{
			field("email", KindString, "email", "Email"),
			field("name", KindString, "Name"),
			field("linked_agent_profile", KindString, "Linked Agent Profile"),
			field("access_level", KindStringList, "Access Level"),
			field("profile_picture", KindString, "Profile Picture"),
		},
	},
	{
		Name: "agent", TypeName: "agent", Table: "agents",
		Fields: []FieldSpec{
			field("name", KindString, "Name"),
			field("phone", KindString, "Contact", "Phone"),
			field("email", KindString, "Email"),
			field("agent_type", KindString, "Agent Type"),
			field("bank_name", KindString, "Bank Name"),
			field("bank_account", KindString, "Bank Account"),
			field("profile_picture", KindString, "Profile Picture"),
		},
	},
	{
		Name: "customer", TypeName: "customer_profile", Table: "customers",
		Fields: []FieldSpec{
			field("name", KindString, "Name"),
			field("phone", KindString, "Contact", "Phone"),
			field("email", KindString, "Email"),
			field("address", KindString, "Address"),
			field("ic_number", KindString, "IC Number"),
			field("linked_agent", KindString, "Linked Agent"),
			field("profile_picture", KindString, "Profile Picture"),
		},
	},
	{
		Name: "invoice_template", TypeName: "invoice_template", Table: "invoice_templates",
		Fields: []FieldSpec{
			field("name", KindString, "Name"),
			field("company_name", KindString, "Company Name"),
			field("logo_url", KindString, "Logo"),
			field("terms", KindString, "Terms"),
			field("is_default", KindBool, "Default"),
		},
	},
	{
		Name: "invoice", TypeName: "invoice", Table: "invoices",
		Fields: []FieldSpec{
			field("invoice_number", KindString, "Invoice ID", "Invoice Number"),
			field("total_amount", KindDecimal, "Total Amount"),
			{Column: "status", Remote: []string{"Status"}, Kind: KindString, Default: "draft"},
			field("linked_payment", KindStringList, "Linked Payment"),
			field("linked_seda_registration", KindString, "Linked SEDA Registration"),
			field("linked_customer", KindString, "Linked Customer"),
			field("linked_agent", KindString, "Linked Agent"),
			field("linked_invoice_item", KindStringList, "Linked Invoice Item"),
			field("linked_template", KindString, "Linked Template"),
			field("created_by", KindString, "Created By"),
			field("percent_of_total_amount", KindDecimal, "Percent of Total Amount"),
			field("invoice_date", KindTime, "Invoice Date"),
			field("remark", KindString, "Remark"),
		},
	},
	{
		Name: "invoice_item", TypeName: "invoice_new_item", Table: "invoice_items",
		Fields: []FieldSpec{
			field("linked_invoice", KindString, "Linked Invoice"),
			field("description", KindString, "Description"),
			field("qty", KindDecimal, "Qty"),
			field("unit_price", KindDecimal, "Unit Price"),
			field("amount", KindDecimal, "Amount"),
			{Column: "sort_order", Remote: []string{"Sort"}, Kind: KindInt, Default: 0},
		},
	},
	{
		Name: "seda_registration", TypeName: "seda_registration", Table: "seda_registrations",
		Fields: []FieldSpec{
			field("seda_status", KindString, "SEDA Status", "Reg Status"),
			field("linked_invoice", KindStringList, "Linked Invoice"),
			field("linked_customer", KindString, "Linked Customer"),
			field("installation_address", KindString, "Installation Address"),
			field("system_size_kwp", KindDecimal, "System Size kWp"),
			field("ic_copy_front", KindString, "IC Copy Front"),
			field("ic_copy_back", KindString, "IC Copy Back"),
			field("tnb_bill", KindString, "TNB Bill"),
			field("property_proof", KindString, "Property Ownership Proof"),
			field("roof_images", KindStringList, "Roof Images"),
			field("site_images", KindStringList, "Site Images"),
		},
	},
	{Name: "payment", TypeName: "payment", Table: "payments", Fields: paymentFieldSpecs},
	// status is local workflow state and is never overwritten by a sync
	{Name: "submitted_payment", TypeName: "submit_payment", Table: "submitted_payments", Fields: paymentFieldSpecs},
}

// LookupEntity returns the registry entry for name
func LookupEntity(name string) (EntitySpec, error) {
	for _, e := range Entities {
		if e.Name == name {
			return e, nil
		}
	}
	return EntitySpec{}, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
}

// EntityNames lists the registry in sync order
func EntityNames() []string {
	names := make([]string, 0, len(Entities))
	for _, e := range Entities {
		names = append(names, e.Name)
	}
	return names
}

// Map converts a remote record into column values for the entity's table
func (e EntitySpec) Map(rec bubble.Record) map[string]interface{} {
	fields := make([]FieldSpec, 0, len(e.Fields)+len(commonFields))
	fields = append(append(fields, e.Fields...), commonFields...)

	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := convert(rec, f); ok {
			out[f.Column] = v
			continue
		}
		out[f.Column] = defaultValue(f)
	}
	return out
}

func defaultValue(f FieldSpec) interface{} {
	if f.Default != nil {
		if f.Kind == KindStringList {
			if list, ok := f.Default.([]string); ok {
				return datatypes.JSONSlice[string](list)
			}
		}
		return f.Default
	}
	switch f.Kind {
	case KindString:
		return ""
	case KindBool:
		return false
	case KindStringList:
		return datatypes.JSONSlice[string]{}
	case KindDecimal:
		return decimal.NullDecimal{}
	}
	return nil
}

func convert(rec bubble.Record, f FieldSpec) (interface{}, bool) {
	switch f.Kind {
	case KindString:
		s, ok := rec.String(f.Remote...)
		return strings.TrimSpace(s), ok
	case KindDecimal:
		s, ok := rec.String(f.Remote...)
		if !ok {
			return nil, false
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
		if err != nil {
			return nil, false
		}
		return decimal.NullDecimal{Decimal: d, Valid: true}, true
	case KindTime:
		t, ok := rec.Time(f.Remote...)
		if !ok {
			return nil, false
		}
		return t, true
	case KindInt:
		s, ok := rec.String(f.Remote...)
		if !ok {
			return nil, false
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, false
		}
		return int(d.IntPart()), true
	case KindBool:
		s, ok := rec.String(f.Remote...)
		if !ok {
			return nil, false
		}
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
		if err != nil {
			return nil, false
		}
		return b, true
	case KindStringList:
		list, ok := rec.StringList(f.Remote...)
		if !ok {
			return nil, false
		}
		return datatypes.JSONSlice[string](list), true
	}
	return nil, false
}
