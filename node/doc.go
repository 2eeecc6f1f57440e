// Package node implements the two nodes of an rclink installation: the Transmitter, which
// reads a handheld input device, and the Receiver, which drives the actuators of a vehicle.
//
// Both nodes talk over a transport.Conn, typically a broadcast-capable UDP socket, and find
// each other with the identify telegrams of the discovery package. Each node runs a few
// long-lived goroutines under an internal task manager. The goroutines share no mutable state;
// they hand values over through the bounded queues of internal/queue.
//
// # Receiver
//
// The receiver drives every channel to failsafe at startup, then applies the control and trim
// telegrams of the transmitter through a channel.Engine. A watchdog drives all channels to
// failsafe once when control telegrams stop for longer than the timeout. A shutdown telegram
// drives failsafe, pauses and calls the shutdown hook.
//
// # Transmitter
//
// The transmitter maps input device events with an InputMap, sends control telegrams every
// control interval, trims on every change and periodically, and status telegrams for the
// status screen. The shutdown button sends the shutdown telegram to the receiver and calls the
// shutdown hook.
//
// Example Usage:
//
//	cfg, err := config.Load("")
//	// ... handle error ...
//
//	conn, err := transport.ListenUDP(ctx, transport.ListenConfig{Port: cfg.Ports.Receiver})
//	// ... handle error ...
//	defer conn.Close()
//
//	rx, err := node.NewReceiver(conn, pwm,
//	    node.WithConfig(cfg),
//	    node.WithNetwork(prefix),
//	    node.WithSensor(adc),
//	)
//	// ... handle error ...
//
//	err = rx.Run(ctx)
package node
