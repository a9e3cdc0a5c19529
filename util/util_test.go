package util

import (
	"fmt"
	"os"
	"reflect"
	"runtime"
	"sync"
	"testing"
)

func TestHome(t *testing.T) {
	homeDirOnce = sync.Once{}
	homeDir = ""
	homeDirErr = nil

	home, err := Home()
	if err != nil {
		if runtime.GOOS != "windows" && os.Getenv("HOME") == "" {
			t.Logf("Home() failed, but HOME is not set: %v. This might be expected in some CI.", err)
			return
		}
		if runtime.GOOS == "windows" && os.Getenv("USERPROFILE") == "" {
			t.Logf("Home() failed, but USERPROFILE is not set: %v. This might be expected in some CI.", err)
			return
		}
		t.Fatalf("Home() error = %v", err)
	}
	if home == "" {
		t.Errorf("Home() returned an empty string")
	}

	homeAgain, errAgain := Home()
	if errAgain != err {
		t.Errorf("Home() on second call error = %v, want %v", errAgain, err)
	}
	if homeAgain != home {
		t.Errorf("Home() on second call got %q, want %q (caching test)", homeAgain, home)
	}
}

func TestGetenvOrDefault(t *testing.T) {
	const key = "STC_TEST_ENV_VAR"
	const def = "default-value"
	const set = "set-value"

	originalValue, wasSet := os.LookupEnv(key)
	t.Cleanup(func() {
		if wasSet {
			os.Setenv(key, originalValue)
		} else {
			os.Unsetenv(key)
		}
	})

	os.Unsetenv(key)
	if got := GetenvOrDefault(key, def); got != def {
		t.Errorf("GetenvOrDefault() = %q, want %q when unset", got, def)
	}

	os.Setenv(key, "")
	if got := GetenvOrDefault(key, def); got != def {
		t.Errorf("GetenvOrDefault() = %q, want %q when empty", got, def)
	}

	os.Setenv(key, set)
	if got := GetenvOrDefault(key, def); got != set {
		t.Errorf("GetenvOrDefault() = %q, want %q when set", got, set)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	tests := []struct {
		name string
		strs []string
		want string
	}{
		{"all empty", []string{"", "", ""}, ""},
		{"first non-empty", []string{"", "hello", "world"}, "hello"},
		{"no args", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstNonEmpty(tt.strs...); got != tt.want {
				t.Errorf("FirstNonEmpty() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContainsString(t *testing.T) {
	slice := []string{"apple", "banana", "cherry"}
	tests := []struct {
		name  string
		slice []string
		str   string
		want  bool
	}{
		{"contains", slice, "banana", true},
		{"missing", slice, "grape", false},
		{"nil slice", nil, "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsString(tt.slice, tt.str); got != tt.want {
				t.Errorf("ContainsString() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUniqueStrings(t *testing.T) {
	tests := []struct {
		name  string
		slice []string
		want  []string
	}{
		{"empty", []string{}, []string{}},
		{"duplicates", []string{"a", "b", "a", "c", "b"}, []string{"a", "b", "c"}},
		{"nil", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UniqueStrings(tt.slice)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("UniqueStrings() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name      string
		s         string
		maxLength int
		ellipsis  string
		want      string
	}{
		{"no truncation", "hello", 10, "...", "hello"},
		{"exact length", "hello", 5, "...", "hello"},
		{"simple truncation", "hello world", 8, "...", "hello..."},
		{"short max for ellipsis", "hello world", 3, "...", "..."},
		{"max smaller than ellipsis", "hello world", 2, "...", ".."},
		{"max zero", "hello world", 0, "...", ""},
		{"max negative", "hello world", -1, "...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.s, tt.maxLength, tt.ellipsis); got != tt.want {
				t.Errorf("TruncateString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCombineErrors(t *testing.T) {
	err1 := fmt.Errorf("error one")
	err2 := fmt.Errorf("error two")

	tests := []struct {
		name string
		errs []error
		want string
	}{
		{"no errors", []error{}, ""},
		{"nil errors", []error{nil, nil}, ""},
		{"one error", []error{err1}, "error one"},
		{"multiple errors", []error{err1, err2}, "error one; error two"},
		{"mixed nil and errors", []error{nil, err1, nil, err2}, "error one; error two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CombineErrors(tt.errs...)
			if tt.want == "" {
				if got != nil {
					t.Errorf("CombineErrors() = %v, want nil", got)
				}
				return
			}
			if got == nil || got.Error() != tt.want {
				t.Errorf("CombineErrors() = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestIsErrPipeClosed(t *testing.T) {
	if !IsErrPipeClosed(os.ErrClosed) {
		t.Errorf("IsErrPipeClosed(os.ErrClosed) = false, want true")
	}
	if IsErrPipeClosed(fmt.Errorf("unrelated error")) {
		t.Errorf("IsErrPipeClosed(unrelated) = true, want false")
	}
}
