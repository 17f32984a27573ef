// Copyright 2024 aicarousel Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package server manages the lifecycle of the gateway's inbound HTTP
listener: non-blocking start, graceful shutdown on a timeout, and
SIGINT/SIGTERM handling for standalone "aicarousel serve" runs.
*/
package server
