// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the subscription handlers. These
// give clients a more specific reason for closure than the standard codes.
const (
	BadSubprotocolError = 3000 // client connected with an unsupported subprotocol
	InvalidRoomIDError  = 3003 // room id in the WS URL is malformed or does not exist
	RoomGoneClose       = 3010 // room was deleted; the client should return to the lobby
)
