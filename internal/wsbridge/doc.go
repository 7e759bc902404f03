// Package wsbridge splices two websocket connections together: the caller's
// connection, upgraded by the gateway, and the connection the instance router
// dialed to the backend.
//
// caller <--- ws ---> [ gateway ] <--- ws ---> instance
package wsbridge
