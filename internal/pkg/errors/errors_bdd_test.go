package errors

import (
	"testing"
)

// BDD-style tests for errors package
// Feature: Categorized Error System
// As a developer
// I want a categorized error system
// So that I can handle different error types appropriately

// Scenario: Creating a validation error
func TestFeature_CategorizedErrors_Scenario_ValidationError(t *testing.T) {
	t.Run("Given a validation failure for a field", func(t *testing.T) {
		fieldName := "key"
		message := "must be a 32-byte shared secret"

		t.Run("When I create a ValidationError", func(t *testing.T) {
			err := NewValidationError(fieldName, message)

			t.Run("Then the error should have the field name", func(t *testing.T) {
				if err.Field != fieldName {
					t.Errorf("expected field '%s', got '%s'", fieldName, err.Field)
				}
			})

			t.Run("And the error should have the message", func(t *testing.T) {
				if err.Message != message {
					t.Errorf("expected message '%s', got '%s'", message, err.Message)
				}
			})

			t.Run("And the error should be categorized as validation", func(t *testing.T) {
				if err.Category() != CategoryValidation {
					t.Errorf("expected CategoryValidation, got %s", err.Category())
				}
			})

			t.Run("And the error string should be human-readable", func(t *testing.T) {
				expected := "validation error: key must be a 32-byte shared secret"
				if err.Error() != expected {
					t.Errorf("expected '%s', got '%s'", expected, err.Error())
				}
			})
		})
	})
}

// Scenario: Creating an internal error with cause
func TestFeature_CategorizedErrors_Scenario_InternalError(t *testing.T) {
	t.Run("Given an operation that failed with a cause", func(t *testing.T) {
		operation := "journal.mirror.append"
		cause := New("disk full")

		t.Run("When I create an InternalError", func(t *testing.T) {
			err := NewInternalError(operation, cause)

			t.Run("Then the error should have the operation name", func(t *testing.T) {
				if err.Operation != operation {
					t.Errorf("expected operation '%s', got '%s'", operation, err.Operation)
				}
			})

			t.Run("And the error should be categorized as internal", func(t *testing.T) {
				if err.Category() != CategoryInternal {
					t.Errorf("expected CategoryInternal, got %s", err.Category())
				}
			})

			t.Run("And I should be able to unwrap to get the cause", func(t *testing.T) {
				if err.Unwrap() != cause {
					t.Error("Unwrap should return the cause")
				}
			})
		})
	})
}

// Scenario: Checking if an error is retryable
func TestFeature_CategorizedErrors_Scenario_RetryableCheck(t *testing.T) {
	t.Run("Given different types of errors", func(t *testing.T) {
		validationErr := NewValidationError("field", "invalid")
		networkErr := NewNetworkError("relay connect", nil)
		permanentErr := NewPermanentError("decrypt envelope", nil)
		plainErr := New("plain error")

		t.Run("When I check if ValidationError is retryable", func(t *testing.T) {
			result := IsRetryable(validationErr)

			t.Run("Then it should return false", func(t *testing.T) {
				if result {
					t.Error("validation errors should not be retryable")
				}
			})
		})

		t.Run("When I check if NetworkError is retryable", func(t *testing.T) {
			result := IsRetryable(networkErr)

			t.Run("Then it should return true", func(t *testing.T) {
				if !result {
					t.Error("network errors should be retryable")
				}
			})
		})

		t.Run("When I check if PermanentError is retryable", func(t *testing.T) {
			result := IsRetryable(permanentErr)

			t.Run("Then it should return false", func(t *testing.T) {
				if result {
					t.Error("permanent errors should never be retryable")
				}
			})
		})

		t.Run("When I check if plain error is retryable", func(t *testing.T) {
			result := IsRetryable(plainErr)

			t.Run("Then it should return false", func(t *testing.T) {
				if result {
					t.Error("plain errors should not be retryable")
				}
			})
		})

		t.Run("When I check if nil is retryable", func(t *testing.T) {
			result := IsRetryable(nil)

			t.Run("Then it should return false", func(t *testing.T) {
				if result {
					t.Error("nil should not be retryable")
				}
			})
		})
	})
}

// Scenario: Checking if an error is a network error
func TestFeature_CategorizedErrors_Scenario_NetworkCheck(t *testing.T) {
	t.Run("Given a NetworkError", func(t *testing.T) {
		err := NewNetworkError("relay store", New("outbound queue full"))

		t.Run("When I check IsNetwork", func(t *testing.T) {
			result := IsNetwork(err)

			t.Run("Then it should return true", func(t *testing.T) {
				if !result {
					t.Error("NetworkError should be identified as network error")
				}
			})
		})
	})

	t.Run("Given a wrapped NetworkError", func(t *testing.T) {
		innerErr := NewNetworkError("relay connect", New("dial timeout"))
		wrappedErr := Wrap(innerErr, "sync cycle failed")

		t.Run("When I check IsNetwork on the wrapped error", func(t *testing.T) {
			result := IsNetwork(wrappedErr)

			t.Run("Then it should return true", func(t *testing.T) {
				if !result {
					t.Error("wrapped NetworkError should still be identified")
				}
			})
		})
	})

	t.Run("Given a PermanentError", func(t *testing.T) {
		err := NewPermanentError("decrypt envelope", nil)

		t.Run("When I check IsNetwork", func(t *testing.T) {
			result := IsNetwork(err)

			t.Run("Then it should return false", func(t *testing.T) {
				if result {
					t.Error("PermanentError should not be identified as network error")
				}
			})
		})
	})
}

// Scenario: Wrapping errors with context
func TestFeature_CategorizedErrors_Scenario_WrappingErrors(t *testing.T) {
	t.Run("Given an original error", func(t *testing.T) {
		original := New("badger transaction conflict")

		t.Run("When I wrap it with context", func(t *testing.T) {
			wrapped := Wrap(original, "failed to persist delta")

			t.Run("Then the wrapped error should include both messages", func(t *testing.T) {
				expected := "failed to persist delta: badger transaction conflict"
				if wrapped.Error() != expected {
					t.Errorf("expected '%s', got '%s'", expected, wrapped.Error())
				}
			})

			t.Run("And I should be able to check if it contains the original", func(t *testing.T) {
				if !Is(wrapped, original) {
					t.Error("wrapped error should contain original")
				}
			})
		})
	})

	t.Run("Given nil", func(t *testing.T) {
		t.Run("When I try to wrap it", func(t *testing.T) {
			result := Wrap(nil, "context")

			t.Run("Then it should return nil", func(t *testing.T) {
				if result != nil {
					t.Error("wrapping nil should return nil")
				}
			})
		})
	})
}

// Scenario: Wrapping errors with formatted context
func TestFeature_CategorizedErrors_Scenario_FormattedWrapping(t *testing.T) {
	t.Run("Given an original error", func(t *testing.T) {
		original := New("entry not found")

		t.Run("When I wrap it with formatted context", func(t *testing.T) {
			deviceID := "device-a"
			entryID := "delta-0a1b2c"
			wrapped := Wrapf(original, "failed to export for device %s, entry %s", deviceID, entryID)

			t.Run("Then the message should include formatted values", func(t *testing.T) {
				expected := "failed to export for device device-a, entry delta-0a1b2c: entry not found"
				if wrapped.Error() != expected {
					t.Errorf("expected '%s', got '%s'", expected, wrapped.Error())
				}
			})
		})
	})
}

// Scenario: Joining multiple errors
func TestFeature_CategorizedErrors_Scenario_JoiningErrors(t *testing.T) {
	t.Run("Given multiple errors", func(t *testing.T) {
		err1 := New("apply failed for key A")
		err2 := New("apply failed for key B")
		err3 := New("apply failed for key C")

		t.Run("When I join them", func(t *testing.T) {
			joined := Join(err1, err2, err3)

			t.Run("Then the joined error should not be nil", func(t *testing.T) {
				if joined == nil {
					t.Fatal("joined error should not be nil")
				}
			})

			t.Run("And it should contain all original errors", func(t *testing.T) {
				if !Is(joined, err1) {
					t.Error("should contain err1")
				}
				if !Is(joined, err2) {
					t.Error("should contain err2")
				}
				if !Is(joined, err3) {
					t.Error("should contain err3")
				}
			})
		})
	})
}

// Scenario: Extracting typed errors with As
func TestFeature_CategorizedErrors_Scenario_ErrorExtraction(t *testing.T) {
	t.Run("Given a wrapped PermanentError", func(t *testing.T) {
		innerErr := NewPermanentError("decrypt envelope", New("bad nonce length 8"))
		wrappedErr := Wrap(innerErr, "full sync data rejected")

		t.Run("When I extract the PermanentError using As", func(t *testing.T) {
			var target *PermanentError
			found := As(wrappedErr, &target)

			t.Run("Then the extraction should succeed", func(t *testing.T) {
				if !found {
					t.Fatal("As should find PermanentError")
				}
			})

			t.Run("And the target should have the original values", func(t *testing.T) {
				if target.Operation != "decrypt envelope" {
					t.Errorf("expected operation 'decrypt envelope', got '%s'", target.Operation)
				}
			})
		})
	})

	t.Run("Given a plain error", func(t *testing.T) {
		plainErr := New("something went wrong")

		t.Run("When I try to extract PermanentError", func(t *testing.T) {
			var target *PermanentError
			found := As(plainErr, &target)

			t.Run("Then the extraction should fail", func(t *testing.T) {
				if found {
					t.Error("should not find PermanentError in plain error")
				}
			})
		})
	})
}

// Scenario: Error categories for routing
func TestFeature_CategorizedErrors_Scenario_CategoryRouting(t *testing.T) {
	t.Run("Given errors of different categories", func(t *testing.T) {
		cases := []struct {
			name        string
			err         Categorized
			expectedCat Category
		}{
			{
				name:        "ValidationError",
				err:         NewValidationError("field", "msg"),
				expectedCat: CategoryValidation,
			},
			{
				name:        "InternalError",
				err:         NewInternalError("op", nil),
				expectedCat: CategoryInternal,
			},
			{
				name:        "NetworkError",
				err:         NewNetworkError("op", nil),
				expectedCat: CategoryNetwork,
			},
			{
				name:        "PermanentError",
				err:         NewPermanentError("op", nil),
				expectedCat: CategoryPermanent,
			},
		}

		for _, tc := range cases {
			t.Run("When I check the category of "+tc.name, func(t *testing.T) {
				t.Run("Then it should return "+string(tc.expectedCat), func(t *testing.T) {
					if tc.err.Category() != tc.expectedCat {
						t.Errorf("expected %s, got %s", tc.expectedCat, tc.err.Category())
					}
				})
			})
		}
	})
}
