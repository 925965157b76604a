package testutil

// Deterministic key material for tests. Never use outside tests.
const (
	TestSKHex = "3b1c5e3a9f4d2e8b7c6a5f4e3d2c1b0a99887766554433221100ffeeddccbbaa"
	TestSK    = "nsec18vw9uw5lf5hgklr2ta8r6tqmp2vcsamx24zrxgs3qrl7ahwvhw4qm5xdvg"
	TestPKHex = "300a0dfbe02ab9f46a505e64e572ce6379036b4eb6609c274feed1f2c90400db"
	TestPK    = "npub1xq9qm7lq92ulg6jstejw2ukwvdusx66wkesfcf60amgl9jgyqrdsf890sx"

	// A second identity, used where events from another author must be ignored.
	OtherSKHex = "7f3a1c9e5b2d4f6a8c0e1b3d5f7a9c2e4b6d8f0a1c3e5b7d9f2a4c6e8b0d1f3a"
	OtherPKHex = "97abdad745343ffbdc44e3a531a853c001b8372ba0b178e55a723a2e59e86e72"
)
