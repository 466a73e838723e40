package testutil

// Test key material for use in tests only. 32 bytes, accepted as an alias
// store key.
const TestStoreKey = "12345678901234567890123456789012"
