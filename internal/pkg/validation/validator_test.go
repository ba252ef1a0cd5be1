package validation

import "testing"

type keyedQuery struct {
	Partition string `validate:"omitempty,tablekey"`
	Select    string `validate:"omitempty,fieldlist"`
}

func TestTableRules(t *testing.T) {
	tests := []struct {
		name   string
		in     keyedQuery
		failed string
	}{
		{"empty", keyedQuery{}, ""},
		{"plain", keyedQuery{Partition: "web-1", Select: "Message, LogLevel"}, ""},
		{"slash in key", keyedQuery{Partition: "web/1"}, "tablekey"},
		{"control char in key", keyedQuery{Partition: "web\t1"}, "tablekey"},
		{"bad property", keyedQuery{Select: "Message,1Level"}, "fieldlist"},
		{"trailing comma", keyedQuery{Select: "Message,"}, "fieldlist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateStruct(tt.in)
			if tt.failed == "" {
				if errs != nil {
					t.Fatalf("unexpected errors: %+v", errs[0])
				}
				return
			}
			if len(errs) != 1 || errs[0].Tag != tt.failed {
				t.Fatalf("errors = %+v, want one %q failure", errs, tt.failed)
			}
			if errs[0].Message == "" {
				t.Error("missing message")
			}
		})
	}
}
