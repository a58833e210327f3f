package badgerstore

import "strconv"

// Key layout:
//
//	like:{itemID}                         -> itemRecord
//	idx:likes:ext:{owner}:{externalID}    -> itemID
//	idx:likes:owner:{owner}:{itemID}      -> (empty)
//	cat:{categoryID}                      -> categoryRecord (with live count)
//	idx:cats:owner:{owner}:{categoryID}   -> (empty)
//	idx:cats:name:{owner}:{name}          -> categoryID
//	idx:cats:likes:{categoryID}:{itemID}  -> (empty)
//	cursor:{owner}                        -> domain.SyncCursor
//	prefs:{owner}                         -> domain.Preferences
//
// Owner ids come from token subjects and may contain ':'. Inside composite
// keys {owner} is written as {len}:{owner} so no owner's range can overlap
// another's.
const (
	itemPrefix          = "like:"
	itemExtIndexPrefix  = "idx:likes:ext:"
	itemOwnerPrefix     = "idx:likes:owner:"
	categoryPrefix      = "cat:"
	categoryOwnerPrefix = "idx:cats:owner:"
	categoryNamePrefix  = "idx:cats:name:"
	categoryItemsPrefix = "idx:cats:likes:"
	cursorPrefix        = "cursor:"
	prefsPrefix         = "prefs:"
)

// ownerSegment length-prefixes ownerID for use ahead of another component.
func ownerSegment(ownerID string) string {
	return strconv.Itoa(len(ownerID)) + ":" + ownerID
}

func itemKey(itemID string) []byte {
	return []byte(itemPrefix + itemID)
}

func itemExtKey(ownerID, externalID string) []byte {
	return []byte(itemExtIndexPrefix + ownerSegment(ownerID) + ":" + externalID)
}

func itemOwnerIndexPrefix(ownerID string) []byte {
	return []byte(itemOwnerPrefix + ownerSegment(ownerID) + ":")
}

func itemOwnerKey(ownerID, itemID string) []byte {
	return []byte(itemOwnerPrefix + ownerSegment(ownerID) + ":" + itemID)
}

func categoryKey(categoryID string) []byte {
	return []byte(categoryPrefix + categoryID)
}

func categoryOwnerIndexPrefix(ownerID string) []byte {
	return []byte(categoryOwnerPrefix + ownerSegment(ownerID) + ":")
}

func categoryOwnerKey(ownerID, categoryID string) []byte {
	return []byte(categoryOwnerPrefix + ownerSegment(ownerID) + ":" + categoryID)
}

func categoryNameKey(ownerID, name string) []byte {
	return []byte(categoryNamePrefix + ownerSegment(ownerID) + ":" + name)
}

func categoryItemsIndexPrefix(categoryID string) []byte {
	return []byte(categoryItemsPrefix + categoryID + ":")
}

func categoryItemKey(categoryID, itemID string) []byte {
	return []byte(categoryItemsPrefix + categoryID + ":" + itemID)
}

func cursorKey(ownerID string) []byte {
	return []byte(cursorPrefix + ownerID)
}

func prefsKey(ownerID string) []byte {
	return []byte(prefsPrefix + ownerID)
}
