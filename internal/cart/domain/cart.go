package domain

// CartItem is one line of the cart. Quantity is always positive for items
// held by a store; a zero quantity means the line does not exist.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Snapshot is a consistent read of the whole cart state.
type Snapshot struct {
	Items      []CartItem
	Count      int
	DrawerOpen bool
	Locked     bool
}
