package tablestore

import (
	"strconv"
	"strings"
	"time"
)

// Query comparison operators.
const (
	Equal              = "eq"
	NotEqual           = "ne"
	GreaterThan        = "gt"
	GreaterThanOrEqual = "ge"
	LessThan           = "lt"
	LessThanOrEqual    = "le"
)

// Logical operators for CombineFilters.
const (
	And = "and"
	Or  = "or"
)

// PartitionKeyProperty and RowKeyProperty are the system property names.
const (
	PartitionKeyProperty = "PartitionKey"
	RowKeyProperty       = "RowKey"
	TimestampProperty    = "Timestamp"
)

// GenerateFilterCondition builds "<property> <op> '<value>'", doubling embedded quotes.
func GenerateFilterCondition(property, op, value string) string {
	return property + " " + op + " '" + strings.ReplaceAll(value, "'", "''") + "'"
}

// GenerateFilterConditionForInt builds "<property> <op> <value>".
func GenerateFilterConditionForInt(property, op string, value int) string {
	return property + " " + op + " " + strconv.Itoa(value)
}

// GenerateFilterConditionForBool builds "<property> <op> true|false".
func GenerateFilterConditionForBool(property, op string, value bool) string {
	return property + " " + op + " " + strconv.FormatBool(value)
}

// GenerateFilterConditionForDate builds "<property> <op> datetime'<RFC3339>'" in UTC.
func GenerateFilterConditionForDate(property, op string, value time.Time) string {
	return property + " " + op + " datetime'" + value.UTC().Format(time.RFC3339Nano) + "'"
}

// CombineFilters joins two non-empty filter expressions with a logical operator.
func CombineFilters(left, op, right string) string {
	return "(" + left + ") " + op + " (" + right + ")"
}
